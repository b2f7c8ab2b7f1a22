package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gunlicence/licensedesk/internal/bridge"
)

const commandTimeout = 5 * time.Second

func loadStatusCmd(b bridge.Bridge) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		snap, err := b.Status(ctx)
		if err != nil {
			return StatusLoadedMsg{Err: fmt.Errorf("failed to load update status: %w", err)}
		}
		return StatusLoadedMsg{Snapshot: snap}
	}
}

func checkForUpdatesCmd(b bridge.Bridge) tea.Cmd {
	return sendCmd(bridge.CommandCheckForUpdates, b.CheckForUpdates, "failed to check for updates")
}

func confirmDownloadCmd(b bridge.Bridge) tea.Cmd {
	return sendCmd(bridge.CommandConfirmDownload, b.ConfirmDownload, "failed to start download")
}

func confirmInstallCmd(b bridge.Bridge) tea.Cmd {
	return sendCmd(bridge.CommandConfirmInstall, b.ConfirmInstall, "failed to start install")
}

func sendCmd(command bridge.Command, call func(context.Context) error, failure string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		if err := call(ctx); err != nil {
			return commandFailedMsg{command: command, err: fmt.Errorf("%s: %w", failure, err)}
		}
		return nil
	}
}

func expireLatestAfter(d time.Duration, token int) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return latestExpiredMsg{token: token}
	})
}

func clearErrorAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

func clearNoticeAfter(d time.Duration, seq int) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}
