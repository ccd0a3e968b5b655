package tools

const (
	// maxReadFileSize is the maximum file size that ReadTool will load (10 MB).
	maxReadFileSize = 10 * 1024 * 1024

	// bashMaxOutput is the maximum output length for bash tool results.
	bashMaxOutput = 10000

	// bashDefaultTimeout is the default timeout in seconds for bash commands.
	bashDefaultTimeout = 120

	// grepMaxMatches is the maximum number of matches the grep tool returns.
	grepMaxMatches = 100

	// grepMaxBytes is the maximum output size in bytes for grep results.
	grepMaxBytes = 50 * 1024 // 50KB

	// grepMaxLine is the per-line truncation limit for grep output.
	grepMaxLine = 500

	// findMaxResults is the maximum number of results the find tool returns.
	findMaxResults = 1000

	// findMaxBytes is the maximum output size in bytes for find results.
	findMaxBytes = 50 * 1024 // 50KB

	// listMaxEntries is the maximum number of entries the list tool returns.
	listMaxEntries = 1000
)
