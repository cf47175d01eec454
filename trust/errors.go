package trust

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

func missingSenderError() error {
	return goerrors.New(
		"trust: webhook event carries no sender email",
		goerrors.CategoryBadInput,
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

func untrustedSenderError(email string) error {
	return goerrors.New(
		fmt.Sprintf("trust: sender %q is not on the trusted list", email),
		goerrors.CategoryAuthz,
	).
		WithCode(http.StatusForbidden).
		WithTextCode(core.BotErrorUntrustedSender).
		WithMetadata(map[string]any{"sender": email})
}
