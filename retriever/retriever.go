package retriever

import (
	"context"

	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/store"
)

const DefaultInstruction = "Given a chat history and the latest user question " +
	"which might reference context in the chat history, " +
	"formulate a standalone question which can be understood " +
	"without the chat history. Do NOT answer the question, " +
	"just reformulate it if needed and otherwise return it as is."

type Retriever interface {
	// Rewrite turns question into a standalone query. An empty history
	// returns question unchanged without calling the model.
	Rewrite(ctx context.Context, question string, history []memory.Message) (string, error)
	Retrieve(ctx context.Context, collection string, query string, k int) ([]store.Match, error)
}
