package cli

type Editor = editor

var (
	RunWithIO  = run
	NewEditor  = newEditor
	ReportPath = reportPath
)
