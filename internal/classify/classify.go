package classify

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/docqa/errs"
	"google.golang.org/api/googleapi"
)

func OpenAI(err error) error {
	if passThrough(err) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errs.FromStatus("openai", apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errs.FromStatus("openai", reqErr.HTTPStatusCode, err)
	}

	return errs.FromStatus("openai", 0, err)
}

func Anthropic(err error) error {
	if passThrough(err) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return errs.FromStatus("anthropic", apiErr.StatusCode, err)
	}

	return errs.FromStatus("anthropic", 0, err)
}

func Google(err error) error {
	if passThrough(err) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		// an invalid key is reported as 400 INVALID_ARGUMENT
		if code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "api key") {
			code = 401
		}
		return errs.FromStatus("google", code, err)
	}

	if strings.Contains(strings.ToLower(err.Error()), "api key not valid") {
		return errs.FromStatus("google", 401, err)
	}

	return errs.FromStatus("google", 0, err)
}

func Ollama(err error) error {
	if passThrough(err) {
		return err
	}

	return errs.FromStatus("ollama", 0, err)
}

// passThrough keeps nil, already classified and caller-cancelled errors as is.
func passThrough(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, errs.ErrAuth) ||
		errors.Is(err, errs.ErrProviderUnavailable)
}
