package retrieval

// Metadata describes where a retrieved document came from.
type Metadata struct {
	Source  string `json:"source"`
	Section string `json:"section"`
	Topic   string `json:"topic"`
	Query   string `json:"query"`
	File    string `json:"file,omitempty"`
}

// Document is one piece of reference text fed into the advisory prompt.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// DefaultSource marks the static availability-floor document.
const DefaultSource = "기본 정보"

const defaultContent = `KRX(한국거래소) 상장 절차에 대한 기본 정보입니다.

주요 상장 시장:
1. 유가증권시장 (KOSPI) - 대형 기업 중심
2. 코스닥시장 - 기술 중심 기업
3. 코넥스시장 - 중소기업 및 벤처기업
4. 채권시장 - 채권 상장

일반적인 상장 절차:
1. 상장 예비심사 신청
2. 상장 심사
3. 상장 결정
4. 상장 공시
5. 상장 등록

자세한 정보는 KRX 공식 가이드북을 참조하시기 바랍니다.`

// DefaultDocuments is the static fallback returned when every search source
// comes up empty. Retrieval never returns an empty list.
func DefaultDocuments() []Document {
	return []Document{
		{
			Content: defaultContent,
			Metadata: Metadata{
				Source:  DefaultSource,
				Section: "default",
				Topic:   "KRX 상장 기본 정보",
				Query:   "기본 정보",
			},
		},
	}
}
