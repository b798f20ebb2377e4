package actions

import (
	"context"

	"streamwire/internal/common/logging"
	"streamwire/internal/storage"
)

// KindLogMessage writes the rendered content to the service log. Useful as a
// response sink in development before a real provider is linked.
const KindLogMessage = "log_message"

type LogExecutor struct {
	logger logging.Logger
}

func NewLogExecutor() *LogExecutor {
	return &LogExecutor{
		logger: logging.GetGlobalLogger().WithFields(logging.String("executor", KindLogMessage)),
	}
}

func (e *LogExecutor) Kind() string {
	return KindLogMessage
}

func (e *LogExecutor) Execute(ctx context.Context, content Content, cred *storage.Credential) error {
	e.logger.Info("Automation fired",
		logging.String("title", content.Title),
		logging.String("message", content.Message),
		logging.String("user_id", cred.UserID),
	)
	return nil
}
