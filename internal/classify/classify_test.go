package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/w-h-a/docqa/errs"
	"google.golang.org/api/googleapi"
)

func TestOpenAI(t *testing.T) {
	assert.ErrorIs(t, OpenAI(&openai.APIError{HTTPStatusCode: 401, Message: "bad key"}), errs.ErrAuth)
	assert.ErrorIs(t, OpenAI(&openai.APIError{HTTPStatusCode: 429, Message: "slow down"}), errs.ErrProviderUnavailable)
	assert.ErrorIs(t, OpenAI(&openai.RequestError{HTTPStatusCode: 403, Err: errors.New("forbidden")}), errs.ErrAuth)
	assert.ErrorIs(t, OpenAI(errors.New("connection reset")), errs.ErrProviderUnavailable)
}

func TestGoogle(t *testing.T) {
	invalidKey := &googleapi.Error{Code: 400, Message: "API key not valid. Please pass a valid API key."}
	assert.ErrorIs(t, Google(invalidKey), errs.ErrAuth)

	assert.ErrorIs(t, Google(&googleapi.Error{Code: 400, Message: "bad request"}), errs.ErrProviderUnavailable)
	assert.ErrorIs(t, Google(&googleapi.Error{Code: 503}), errs.ErrProviderUnavailable)
	assert.ErrorIs(t, Google(errors.New("rpc error: API key not valid")), errs.ErrAuth)
}

func TestPassThrough(t *testing.T) {
	assert.NoError(t, Ollama(nil))

	cancelled := fmt.Errorf("stream: %w", context.Canceled)
	assert.Same(t, cancelled, Ollama(cancelled))

	auth := errs.Auth("missing key")
	assert.Same(t, auth, Anthropic(auth))

	assert.ErrorIs(t, Ollama(errors.New("dial tcp: connection refused")), errs.ErrProviderUnavailable)
}
