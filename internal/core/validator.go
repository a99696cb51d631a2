package core

import (
	"errors"

	"github.com/vovakirdan/relaychat/internal/conn"
	"github.com/vovakirdan/relaychat/internal/registry"
)

// CheckAlias reports whether alias is non-empty and made only of ASCII
// letters, digits, '_' and '-'.
func CheckAlias(alias string) error {
	if alias == "" {
		return coreError(ErrCodeEmptyAlias, "alias must not be empty")
	}
	for _, r := range alias {
		if !aliasRune(r) {
			return coreError(ErrCodeBadAlias, "alias may only contain letters, digits, '_' and '-'")
		}
	}
	return nil
}

func aliasRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-':
		return true
	}
	return false
}

// AliasValidator reads one chunk of text from a pending channel as its
// alias proposal. Uniqueness is checked by the registry on admit.
type AliasValidator struct{}

// Validate implements registry.Validator.
func (AliasValidator) Validate(ch *conn.Channel) (string, error) {
	text, err := ch.Poll()
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", registry.ErrNoProposal
	}
	if err := CheckAlias(text); err != nil {
		return "", err
	}
	return text, nil
}

// refusalCode maps an admission failure to the code sent in REFUSED.
func refusalCode(err error) string {
	if code := ErrorCode(err); code != "" {
		return code
	}
	if errors.Is(err, registry.ErrAliasTaken) {
		return ErrCodeAliasTaken
	}
	if errors.Is(err, registry.ErrEmptyAlias) {
		return ErrCodeEmptyAlias
	}
	return ErrCodeBadAlias
}
