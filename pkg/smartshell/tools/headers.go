package tools

// Output headers written by tools whose results are worth reading aloud.
// The orchestrator uses them to decide when a final answer is announced.
const (
	HeaderDirectoryListing = "--- CONTENTS OF "
	HeaderFileContents     = "--- FILE CONTENTS: "
	HeaderCommandOutput    = "--- COMMAND OUTPUT: "
	HeaderWorkingDirectory = "Now in: "
)

// AnnounceHeaders lists every header above.
var AnnounceHeaders = []string{
	HeaderDirectoryListing,
	HeaderFileContents,
	HeaderCommandOutput,
	HeaderWorkingDirectory,
}
