package connector

// Operation names a remote opencat-business capability.
type Operation string

const (
	OpValidateRecord                   Operation = "validateRecord"
	OpCheckTemplate                    Operation = "checkTemplate"
	OpCheckTemplateBuild               Operation = "checkTemplateBuild"
	OpCheckDoubleRecordFrontend        Operation = "checkDoubleRecordFrontend"
	OpCheckDoubleRecord                Operation = "checkDoubleRecord"
	OpDoRecategorizationThings         Operation = "doRecategorizationThings"
	OpRecategorizationNoteFieldFactory Operation = "recategorizationNoteFieldFactory"
	OpBuildRecord                      Operation = "buildRecord"
	OpSortRecord                       Operation = "sortRecord"
	OpGetValidateSchemas               Operation = "getValidateSchemas"
	OpPreprocess                       Operation = "preprocess"
	OpMetacompass                      Operation = "metacompass"
)

const apiPrefix = "/api/v1/"

// Operations lists every operation the connector exposes.
var Operations = []Operation{
	OpValidateRecord,
	OpCheckTemplate,
	OpCheckTemplateBuild,
	OpCheckDoubleRecordFrontend,
	OpCheckDoubleRecord,
	OpDoRecategorizationThings,
	OpRecategorizationNoteFieldFactory,
	OpBuildRecord,
	OpSortRecord,
	OpGetValidateSchemas,
	OpPreprocess,
	OpMetacompass,
}

// Path returns the URL path appended to the base URL, e.g. /api/v1/sortRecord.
func (op Operation) Path() string {
	return apiPrefix + string(op)
}

func (op Operation) String() string {
	return string(op)
}
