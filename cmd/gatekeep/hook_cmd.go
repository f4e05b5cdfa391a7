package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gatekeep-go/internal/cache"
	"gatekeep-go/internal/config"
	"gatekeep-go/internal/filestore"
	"gatekeep-go/internal/hook"
	"gatekeep-go/internal/logs"
	"gatekeep-go/internal/policy"
	"gatekeep-go/internal/sessions"
	"gatekeep-go/internal/state"
)

var (
	hookCmd = &cobra.Command{
		Use:   "hook",
		Short: "Evaluate an agent hook event",
		Long: `Evaluate a hook event delivered by the host agent.

Reads the hook payload from stdin and writes the protocol response to
stdout. Designed to be wired into the agent's hook configuration:

  PreToolUse:  gatekeep hook --event PreToolUse
  PostToolUse: gatekeep hook --event PostToolUse
  Stop:        gatekeep hook --event Stop

Every internal failure resolves to allow so a broken installation never
blocks the agent.`,
		RunE:         runHook,
		SilenceUsage: true,
	}

	hookEvent string
)

func init() {
	hookCmd.Flags().StringVar(&hookEvent, "event", "", "Hook event name (defaults to the payload's hook_event_name)")
}

func runHook(_ *cobra.Command, _ []string) error {
	logger := logs.SetupHookLogger(logLevel, logDir)
	defer func() { _ = logger.Sync() }()

	executeHook(os.Stdin, os.Stdout, hookEvent, logger)
	return nil
}

// executeHook runs one hook evaluation from payload to protocol
// response. It never reports failure upward: every error path writes an
// allow response and exits clean.
func executeHook(in io.Reader, out io.Writer, event string, logger *zap.Logger) {
	input, err := hook.ParseInput(in)
	if err != nil {
		logger.Warn("unparseable hook payload, allowing", zap.Error(err))
		_ = hook.WriteResponse(out, event, hook.Result{Allowed: true})
		return
	}
	if event == "" {
		event = input.HookEventName
	}

	cfg, err := config.LoadForProject(input.Cwd)
	if err != nil {
		logger.Warn("config load failed, allowing", zap.Error(err))
		_ = hook.WriteResponse(out, event, hook.Result{Allowed: true})
		return
	}
	if len(cfg.Requirements) == 0 {
		// Nothing configured: answer immediately, skip all store setup.
		_ = hook.WriteResponse(out, event, hook.Result{Allowed: true})
		return
	}

	files := filestore.New()
	cacheDB := cache.Open(cache.DefaultDir(), logger)
	defer cacheDB.Close()

	runner := &hook.Runner{
		Config:   cfg,
		States:   state.NewStore(files, logger),
		Registry: sessions.NewRegistry(files, sessions.DefaultPath(), logger),
		Engine:   policy.NewEngine(cacheDB, nil, logger),
		Dedup:    cacheDB,
		Logger:   logger,
		OwnerPID: os.Getppid(),
	}

	result := runner.Run(event, input)
	if err := hook.WriteResponse(out, event, result); err != nil {
		logger.Error("write hook response failed", zap.Error(err))
	}
}
