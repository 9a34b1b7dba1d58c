package infra

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
)

// CommandActuator implements domain.DeviceActuator by shelling out to
// configured commands. An empty command disables the action; the intent
// is still logged so enforcement decisions stay observable on hosts
// without the desktop helpers installed.
//
// Placeholders in command arguments:
//
//	{message} - lock-screen message
//	{title}   - notification title
//	{body}    - notification body
type CommandActuator struct {
	lockCommand   []string
	homeCommand   []string
	notifyCommand []string
	logger        *zap.Logger
}

// NewCommandActuator creates an actuator from configured command lines.
func NewCommandActuator(lock, home, notify []string, logger *zap.Logger) *CommandActuator {
	return &CommandActuator{
		lockCommand:   lock,
		homeCommand:   home,
		notifyCommand: notify,
		logger:        logger,
	}
}

// ShowLockScreen surfaces the lock-screen UI with an optional message.
func (a *CommandActuator) ShowLockScreen(message string) error {
	a.logger.Info("locking device", zap.String("message", message))
	return a.run(a.lockCommand, map[string]string{"{message}": message})
}

// NavigateHome returns the device to the home screen.
func (a *CommandActuator) NavigateHome() error {
	a.logger.Info("navigating to home screen")
	return a.run(a.homeCommand, nil)
}

// ShowNotification displays a notification to the supervising party.
func (a *CommandActuator) ShowNotification(title, body string) error {
	a.logger.Info("showing notification",
		zap.String("title", title),
		zap.String("body", body))
	return a.run(a.notifyCommand, map[string]string{"{title}": title, "{body}": body})
}

func (a *CommandActuator) run(command []string, vars map[string]string) error {
	if len(command) == 0 {
		return nil
	}

	args := make([]string, len(command))
	copy(args, command)
	for i := range args {
		for placeholder, value := range vars {
			args[i] = strings.ReplaceAll(args[i], placeholder, value)
		}
	}

	cmd := exec.Command(args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command %s failed: %w (output: %s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Ensure CommandActuator implements domain.DeviceActuator.
var _ domain.DeviceActuator = (*CommandActuator)(nil)
