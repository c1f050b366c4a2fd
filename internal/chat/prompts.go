// Package chat turns a session's question into a grounded answer: the
// rewriter folds chat history into a standalone question, and the generator
// answers it from retrieved document context.
package chat

// contextualizePrompt instructs the model to reformulate a follow-up question
// into one that stands alone without the chat history. The model must not
// answer, only rewrite.
const contextualizePrompt = `Given a chat history and the latest user question which might reference context in the chat history, formulate a standalone question which can be understood without the chat history. Do NOT answer the question, just reformulate it if needed and otherwise return it as is.`

// answerPrompt instructs the model to answer from the supplied document
// context. The retrieved chunks are appended under the Context heading.
const answerPrompt = `You are a helpful AI assistant. Use the following context to answer the user's question.

Context:
`
