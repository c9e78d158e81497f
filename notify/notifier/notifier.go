// Package notifier holds the notifier used by the automation.
package notifier

import (
	"context"

	"github.com/Darkness4/bili-auto-quality/notify"
)

// Notifier is the notifier used to notify the user about the automation.
var Notifier *notify.FormatedNotifier = notify.NewFormatedNotifier(
	notify.NewDummyNotifier(),
	notify.DefaultNotificationFormats,
)

// NotifyConfigReloaded notifies the user that the configuration has been reloaded.
func NotifyConfigReloaded(ctx context.Context) error {
	return Notifier.NotifyConfigReloaded(ctx)
}

// NotifyPanicked notifies the user that the program has panicked.
func NotifyPanicked(ctx context.Context, capture any) error {
	return Notifier.NotifyPanicked(ctx, capture)
}

// NotifyApplied notifies the user that the quality was set.
func NotifyApplied(ctx context.Context, outcome notify.PageOutcome) error {
	return Notifier.NotifyApplied(ctx, outcome)
}

// NotifyExhausted notifies the user that the quality could not be set.
func NotifyExhausted(ctx context.Context, outcome notify.PageOutcome) error {
	return Notifier.NotifyExhausted(ctx, outcome)
}

// NotifyCanceled notifies the user that the polling was canceled.
func NotifyCanceled(ctx context.Context, outcome notify.PageOutcome) error {
	return Notifier.NotifyCanceled(ctx, outcome)
}
