package notify

import (
	"context"
	"strings"
	"text/template"

	"github.com/Darkness4/bili-auto-quality/utils/ptr"
)

// NotificationFormats is a collection of formats for notifications.
type NotificationFormats struct {
	ConfigReloaded NotificationFormat `yaml:"configReloaded,omitempty"`
	Panicked       NotificationFormat `yaml:"panicked,omitempty"`
	Applied        NotificationFormat `yaml:"applied,omitempty"`
	Exhausted      NotificationFormat `yaml:"exhausted,omitempty"`
	Canceled       NotificationFormat `yaml:"canceled,omitempty"`
}

// NotificationFormat is a format for a notification.
type NotificationFormat struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Title    string `yaml:"title,omitempty"`
	Message  string `yaml:"message,omitempty"`
	Priority int    `yaml:"priority,omitempty"`
}

// NotificationTemplates is a collection of templates for notifications.
type NotificationTemplates struct {
	ConfigReloaded NotificationTemplate
	Panicked       NotificationTemplate
	Applied        NotificationTemplate
	Exhausted      NotificationTemplate
	Canceled       NotificationTemplate
}

// NotificationTemplate is a template for a notification.
type NotificationTemplate struct {
	TitleTemplate   *template.Template
	MessageTemplate *template.Template
}

// DefaultNotificationFormats is the default notification formats.
var DefaultNotificationFormats = NotificationFormats{
	ConfigReloaded: NotificationFormat{
		Enabled:  ptr.Ref(true),
		Title:    "config reloaded",
		Message:  "",
		Priority: 10,
	},
	Panicked: NotificationFormat{
		Enabled:  ptr.Ref(true),
		Title:    "panicked",
		Message:  "{{ .Capture }}",
		Priority: 10,
	},
	Applied: NotificationFormat{
		Enabled:  ptr.Ref(false),
		Title:    "quality set to {{ .Description }}",
		Message:  "{{ .URL }}",
		Priority: 0,
	},
	Exhausted: NotificationFormat{
		Enabled:  ptr.Ref(true),
		Title:    "could not set the quality after {{ .Attempts }} attempts",
		Message:  "{{ .URL }}",
		Priority: 7,
	},
	Canceled: NotificationFormat{
		Enabled: ptr.Ref(false),
		Title:   "quality polling canceled",
		Message: "{{ .URL }}",
	},
}

func (old *NotificationFormat) applyNotificationFormatDefault(
	newFormat NotificationFormat,
) {
	if newFormat.Enabled != nil {
		old.Enabled = newFormat.Enabled
	}
	if newFormat.Title != "" {
		old.Title = newFormat.Title
	}
	if newFormat.Message != "" {
		old.Message = newFormat.Message
	}
	if newFormat.Priority != 0 {
		old.Priority = newFormat.Priority
	}
}

func applyNotificationFormatsDefault(newFormat NotificationFormats) NotificationFormats {
	formats := DefaultNotificationFormats
	formats.ConfigReloaded.applyNotificationFormatDefault(newFormat.ConfigReloaded)
	formats.Panicked.applyNotificationFormatDefault(newFormat.Panicked)
	formats.Applied.applyNotificationFormatDefault(newFormat.Applied)
	formats.Exhausted.applyNotificationFormatDefault(newFormat.Exhausted)
	formats.Canceled.applyNotificationFormatDefault(newFormat.Canceled)
	return formats
}

func initializeTemplate(name string, format NotificationFormat) NotificationTemplate {
	return NotificationTemplate{
		TitleTemplate:   template.Must(template.New(name).Parse(format.Title)),
		MessageTemplate: template.Must(template.New(name).Parse(format.Message)),
	}
}

func initializeTemplates(formats NotificationFormats) NotificationTemplates {
	return NotificationTemplates{
		ConfigReloaded: initializeTemplate("ConfigReloaded", formats.ConfigReloaded),
		Panicked:       initializeTemplate("Panicked", formats.Panicked),
		Applied:        initializeTemplate("Applied", formats.Applied),
		Exhausted:      initializeTemplate("Exhausted", formats.Exhausted),
		Canceled:       initializeTemplate("Canceled", formats.Canceled),
	}
}

// FormatedNotifier is a notifier that formats the notifications.
type FormatedNotifier struct {
	Notifier
	NotificationFormats
	NotificationTemplates
}

// NewFormatedNotifier creates a new FormatedNotifier.
//
// Missing fields of formats are taken from DefaultNotificationFormats.
func NewFormatedNotifier(notifier Notifier, formats NotificationFormats) *FormatedNotifier {
	formats = applyNotificationFormatsDefault(formats)
	return &FormatedNotifier{
		Notifier:              notifier,
		NotificationFormats:   formats,
		NotificationTemplates: initializeTemplates(formats),
	}
}

// PageOutcome is the data passed to the page templates.
type PageOutcome struct {
	Page        string
	URL         string
	Code        int
	Description string
	Attempts    int
	Labels      map[string]string
}

func (n *FormatedNotifier) send(
	ctx context.Context,
	format NotificationFormat,
	tmpl NotificationTemplate,
	data any,
) error {
	if format.Enabled == nil || !*format.Enabled {
		return nil
	}
	var titleSB strings.Builder
	var messageSB strings.Builder
	if err := tmpl.TitleTemplate.Execute(&titleSB, data); err != nil {
		return err
	}
	if err := tmpl.MessageTemplate.Execute(&messageSB, data); err != nil {
		return err
	}
	return n.Notify(
		ctx,
		titleSB.String(),
		messageSB.String(),
		Priority(format.Priority),
	)
}

// NotifyConfigReloaded sends a notification that the configuration has been reloaded.
func (n *FormatedNotifier) NotifyConfigReloaded(ctx context.Context) error {
	return n.send(
		ctx,
		n.NotificationFormats.ConfigReloaded,
		n.NotificationTemplates.ConfigReloaded,
		struct{}{},
	)
}

// NotifyPanicked sends a notification that the program has panicked.
func (n *FormatedNotifier) NotifyPanicked(ctx context.Context, capture any) error {
	return n.send(
		ctx,
		n.NotificationFormats.Panicked,
		n.NotificationTemplates.Panicked,
		struct {
			Capture any
		}{
			Capture: capture,
		},
	)
}

// NotifyApplied sends a notification that a quality method accepted the request.
func (n *FormatedNotifier) NotifyApplied(ctx context.Context, outcome PageOutcome) error {
	return n.send(
		ctx,
		n.NotificationFormats.Applied,
		n.NotificationTemplates.Applied,
		outcome,
	)
}

// NotifyExhausted sends a notification that the poller gave up.
func (n *FormatedNotifier) NotifyExhausted(ctx context.Context, outcome PageOutcome) error {
	return n.send(
		ctx,
		n.NotificationFormats.Exhausted,
		n.NotificationTemplates.Exhausted,
		outcome,
	)
}

// NotifyCanceled sends a notification that the poller was canceled.
func (n *FormatedNotifier) NotifyCanceled(ctx context.Context, outcome PageOutcome) error {
	return n.send(
		ctx,
		n.NotificationFormats.Canceled,
		n.NotificationTemplates.Canceled,
		outcome,
	)
}
