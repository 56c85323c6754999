package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/krxlab/ipo-advisor/config"
	"github.com/krxlab/ipo-advisor/internal/client"
	"github.com/krxlab/ipo-advisor/internal/store"
	"github.com/krxlab/ipo-advisor/internal/workflow"
)

func chatCmd(cfgPath *string) *cobra.Command {
	var noRAG bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive advisory session against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			api := client.NewAPI(cfg.Client.BaseURL, cfg.Client.Timeout)
			return runChat(cmd.Context(), api, !noRAG)
		},
	}
	cmd.Flags().BoolVar(&noRAG, "no-rag", false, "disable retrieval augmentation")
	return cmd
}

func runChat(ctx context.Context, api *client.API, enableRAG bool) error {
	session := client.NewSession(api)
	in := bufio.NewScanner(os.Stdin)

	fmt.Println("KRX 상장 상담을 시작합니다. 상담 주제를 입력하세요.")
	fmt.Println("명령: /history  /load <id>  /delete <id>  /new  /quit")

	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil
		case line == "/new":
			session.StartNew()
			fmt.Println("새 상담을 시작합니다.")
		case line == "/history":
			listHistory(ctx, api)
		case strings.HasPrefix(line, "/load "):
			loadHistory(ctx, api, session, strings.TrimPrefix(line, "/load "))
		case strings.HasPrefix(line, "/delete "):
			deleteHistory(ctx, api, strings.TrimPrefix(line, "/delete "))
		default:
			streamAdvice(ctx, api, session, line, enableRAG)
		}
	}
}

func streamAdvice(ctx context.Context, api *client.API, session *client.Session, topic string, enableRAG bool) {
	session.Begin(topic)
	fmt.Println("상담이 진행 중입니다... 완료까지 잠시 기다려주세요.")

	body, err := api.StreamAdvice(ctx, topic, enableRAG)
	if err != nil {
		var te *client.TransportError
		if errors.As(err, &te) {
			fmt.Printf("API 오류: %v\n", te)
		} else {
			fmt.Printf("요청 오류: %v\n", err)
		}
		session.StartNew()
		return
	}
	if err := session.ReadStream(ctx, body); err != nil {
		fmt.Printf("스트림 오류: %v\n", err)
		return
	}
	if session.LastError != "" {
		fmt.Printf("상담 실패: %s\n", session.LastError)
		return
	}
	renderResults(session)
}

func renderResults(session *client.Session) {
	fmt.Printf("\n상담내역: %s\n", session.Topic)
	for _, msg := range session.Messages {
		fmt.Printf("\n[%s]\n%s\n", msg.Role, msg.Content)
	}
	renderSourceMaterials(session.Docs)
}

// renderSourceMaterials prints the top reference documents, 300 chars each.
func renderSourceMaterials(docs map[string][]string) {
	contents := docs[workflow.RoleIPOAgent]
	if len(contents) == 0 {
		return
	}
	fmt.Println("\n사용된 참고 자료:")
	for i, doc := range contents {
		if i >= 3 {
			break
		}
		preview := []rune(doc)
		if len(preview) > 300 {
			preview = append(preview[:300], []rune("...")...)
		}
		fmt.Printf("\n문서 %d\n%s\n", i+1, string(preview))
	}
}

func listHistory(ctx context.Context, api *client.API) {
	items, err := api.ListHistory(ctx, 0, 100)
	if err != nil {
		fmt.Printf("이력 조회 오류: %v\n", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("저장된 상담내역이 없습니다.")
		return
	}
	for _, it := range items {
		fmt.Printf("%4d  %s  %s\n", it.ID, it.CreatedAt.Format("2006-01-02 15:04"), it.Topic)
	}
}

func loadHistory(ctx context.Context, api *client.API, session *client.Session, arg string) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		fmt.Println("사용법: /load <id>")
		return
	}
	item, err := api.GetHistory(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("상담내역 %d 없음\n", id)
		} else {
			fmt.Printf("이력 조회 오류: %v\n", err)
		}
		return
	}
	if err := session.LoadHistory(item); err != nil {
		fmt.Printf("이력 로드 오류: %v\n", err)
		return
	}
	fmt.Println("저장된 상담내역을 보고 있습니다.")
	renderResults(session)
}

func deleteHistory(ctx context.Context, api *client.API, arg string) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		fmt.Println("사용법: /delete <id>")
		return
	}
	if err := api.DeleteHistory(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("상담내역 %d 없음\n", id)
		} else {
			fmt.Printf("삭제 오류: %v\n", err)
		}
		return
	}
	fmt.Printf("상담내역 %d 삭제됨\n", id)
}
