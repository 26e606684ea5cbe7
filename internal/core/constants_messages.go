package core

// Messages returned by the HTTP surface
const (
	MsgGenerateFailed     = "Ollama generate request failed"
	MsgFetchTagsFailed    = "Failed to fetch Ollama models"
	MsgCannotConnect      = "Cannot connect to Ollama service"
	MsgInvalidRequestBody = "invalid request body"
	MsgUnknownProvider    = "unknown provider"
)

// Messages produced by the availability resolver and model lister
const (
	MsgNoModelSelected      = "No model selected. Please select an AI model in settings first."
	MsgServiceNotResponding = "Ollama service is not responding. Please make sure Ollama is running."
	MsgNoModelsInstalledFmt = "No Ollama models installed. Pull one with: ollama pull %s"
	MsgModelNotInstalledFmt = "%s is not installed. Run: ollama pull %s"
	MsgConnectionFailedFmt  = "Cannot connect to Ollama service. Error: %s"
	MsgListModelsFailed     = "Failed to fetch Ollama models. Make sure Ollama is running."
	MsgListModelsNoConnect  = "Cannot connect to Ollama service."
)
