package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/krxlab/ipo-advisor/internal/retrieval"
	"github.com/krxlab/ipo-advisor/provider"
)

const advisorSystemPrompt = "당신은 KRX에 상장심사 담당자입니다. KRX의 각종 시장에 상장하려고 하는 사람들에게 적극적으로 가이드를 해주어야 합니다."

// Retriever supplies reference documents for a topic. The retrieval gateway
// implements it; tests stub it.
type Retriever interface {
	Retrieve(ctx context.Context, topic, role string, maxResults int) ([]retrieval.Document, error)
}

// AdvisorNode is the KRX listing examiner agent: one retrieval-augmented
// completion per run.
type AdvisorNode struct {
	provider   provider.Provider
	retriever  Retriever // nil disables retrieval augmentation
	maxResults int
	logger     *log.Logger
}

func NewAdvisorNode(p provider.Provider, retriever Retriever, maxResults int) *AdvisorNode {
	return &AdvisorNode{
		provider:   p,
		retriever:  retriever,
		maxResults: maxResults,
		logger:     log.New(log.Writer(), "[AGENT] ", log.LstdFlags),
	}
}

func (n *AdvisorNode) Name() string { return RoleIPOAgent }

// Run retrieves context (best-effort), builds the advisory prompt and calls
// the completion backend. Retrieval degradation is silent; completion failure
// is fatal to the run.
func (n *AdvisorNode) Run(ctx context.Context, st *State) (string, error) {
	n.retrieveContext(ctx, st)

	response, err := n.provider.Completion(ctx, advisorSystemPrompt, n.buildPrompt(st))
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}

	st.Messages = append(st.Messages, Message{Role: n.Name(), Content: response})
	return response, nil
}

func (n *AdvisorNode) retrieveContext(ctx context.Context, st *State) {
	if n.retriever == nil {
		return
	}
	docs, err := n.retriever.Retrieve(ctx, st.Topic, n.Name(), n.maxResults)
	if err != nil {
		n.logger.Printf("retrieval failed, answering without context: %v", err)
		return
	}
	contents := make([]string, 0, len(docs))
	for _, d := range docs {
		contents = append(contents, d.Content)
	}
	st.Docs[n.Name()] = contents
	st.Contexts[n.Name()] = strings.Join(contents, "\n\n")
}

func (n *AdvisorNode) buildPrompt(st *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "당신은 '%s'에 대해 KRX시장에 상장하는 방법을 가이드해주세요.\n", st.Topic)
	b.WriteString("2 ~ 3문단, 각 문단은 100자내로 작성해주세요.\n")
	b.WriteString("응답내용에 절차가 있다면, 도식화해서 제시하면 더 좋을 듯합니다.\n")
	if context := st.Contexts[n.Name()]; context != "" {
		b.WriteString("\n다음 참고 자료를 활용해서 답변해주세요:\n")
		b.WriteString(context)
	}
	return b.String()
}
