// Package pipeline provides the stage execution engine behind every compiled
// asset.
//
// An Executor owns a fixed, ordered list of stages for one asset kind:
//
//	script: template -> transpile -> minify
//	style:  template -> stylesheet
//
// Each stage is a function of (text, render context) returning new text or an
// error. Errors never leave the executor. A failed stage is logged, tagged
// degraded in the result, and its input is handed unchanged to the next stage,
// so a request that read its source always gets a body. Panics inside a stage
// are recovered and treated the same way.
//
// Every stage runs inside its own OpenTelemetry span named stage.<name>.
package pipeline
