package orchestrator

import "os"

// readFileHead returns up to maxBytes of path's content, for the
// /memory command's preview (the full file still feeds the flow's
// append_system_prompt step — this is just what's shown to the user).
func readFileHead(path string, maxBytes int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > maxBytes {
		data = data[:maxBytes]
	}
	return string(data), nil
}
