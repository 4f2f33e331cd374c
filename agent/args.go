package agent

// InvocationConfig holds the parameters for one headless agent CLI turn.
type InvocationConfig struct {
	Prompt   string
	Model    string // optional model override
	ResumeID string // external session id from a prior turn, for --resume
}

// BuildCommandArgs builds the agent CLI argument list for a headless,
// streaming-JSON invocation. Exported for testing argument construction.
func BuildCommandArgs(cfg InvocationConfig) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}

	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}

	if cfg.ResumeID != "" {
		args = append(args, "--resume", cfg.ResumeID)
	}

	args = append(args, cfg.Prompt)
	return args
}
