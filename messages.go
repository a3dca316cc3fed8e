package checkout

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// MessageID names a shopper-facing message
type MessageID string

const (
	MsgIncompletePayment      MessageID = "IncompletePaymentInformation"
	MsgPreparingFormFailed    MessageID = "PreparingFormFailed"
	MsgGenericError           MessageID = "GenericError"
	MsgTooManyAttempts        MessageID = "TooManyAttempts"
	MsgFingerprintUnavailable MessageID = "FingerprintUnavailable"
)

// Messages localizes shopper-facing text
type Messages struct {
	localizer *i18n.Localizer
}

// NewMessages loads the embedded catalog for the preferred languages. Unknown
// languages fall back to English.
func NewMessages(langs ...string) (*Messages, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.toml")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}
	for _, file := range files {
		data, err := fs.ReadFile(localeFS, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, path.Base(file)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	}

	return &Messages{localizer: i18n.NewLocalizer(bundle, langs...)}, nil
}

// MustMessages is NewMessages for the embedded catalog, which always parses
func MustMessages(langs ...string) *Messages {
	m, err := NewMessages(langs...)
	if err != nil {
		panic(err)
	}
	return m
}

// Text returns the localized message, or the id if it is missing
func (m *Messages) Text(id MessageID) string {
	text, err := m.localizer.Localize(&i18n.LocalizeConfig{MessageID: string(id)})
	if err != nil || text == "" {
		return string(id)
	}
	return text
}
