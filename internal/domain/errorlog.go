package domain

import (
	"fmt"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// Значения по умолчанию для ErrorLog.
const (
	ErrorLogMsgType  = "post"
	ErrorLogRecvName = "server-alert"
	BlockTagText     = "text"
)

// Block — один текстовый блок в сообщении алерта.
type Block struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// ErrorLog — структурированный алерт, который consumer публикует
// в очередь error-log при необработанной ошибке обработчика.
//
// Content — список абзацев, каждый абзац — список блоков.
// Identity используется потребителем алертов для дедупликации.
type ErrorLog struct {
	MsgType  string    `json:"msg_type"`
	RecvName string    `json:"recv_name"`
	Title    string    `json:"title,omitempty"`
	Content  [][]Block `json:"content"`
	Identity string    `json:"identity,omitempty"`
}

// NewErrorLog создаёт алерт, в котором каждый paragraph — отдельный абзац.
func NewErrorLog(title string, paragraphs ...string) *ErrorLog {
	content := make([][]Block, 0, len(paragraphs))
	for _, p := range paragraphs {
		content = append(content, []Block{{Tag: BlockTagText, Text: p}})
	}

	return &ErrorLog{
		MsgType:  ErrorLogMsgType,
		RecvName: ErrorLogRecvName,
		Title:    title,
		Content:  content,
	}
}

// Validate проверяет алерт перед публикацией.
func (l *ErrorLog) Validate() error {
	if len(l.Content) == 0 {
		return ErrEmptyContent
	}
	return nil
}

// runtimeSeed — случайная соль, живёт столько же, сколько процесс.
// После рестарта одинаковые ошибки получают другой Identity,
// и дедупликация на стороне алертинга начинается заново.
var runtimeSeed = rand.Uint64()

// AlertIdentity вычисляет детерминированный (в пределах процесса)
// идентификатор алерта по очереди, задаче и ошибке.
func AlertIdentity(queue, task, identity string, err error) string {
	return alertIdentity(runtimeSeed, queue, task, identity, err)
}

// lowSeed — смещение соли для младших 64 бит идентификатора.
const lowSeed = 0x9e3779b97f4a7c15

// alertIdentity — 128 бит (32 hex-символа): две половины xxhash64
// с разной солью.
func alertIdentity(seed uint64, queue, task, identity string, err error) string {
	key := fmt.Sprintf("%s-%s-%s-%v", queue, task, identity, err)

	hi := xxhash.NewWithSeed(seed)
	lo := xxhash.NewWithSeed(seed ^ lowSeed)
	_, _ = hi.WriteString(key)
	_, _ = lo.WriteString(key)

	return fmt.Sprintf("%016x%016x", hi.Sum64(), lo.Sum64())
}
