package question

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chypac/olimpiafa/internal/domain"
)

// FileLoader parses questions from a plain-text file. Questions are blocks
// separated by "---" lines; each block holds "key: value" pairs where a
// value may continue over following lines until the next key:
//
//	title: Two plus two
//	text: What is 2 + 2?
//	answer: 4 или четыре
//	score: 2
//	time_limit: 60
//	hint: Count on your fingers.
//
// Blocks without text or answer, or with non-numeric score/time_limit,
// are skipped.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

var blockKeys = []string{"title", "text", "answer", "score", "time_limit", "hint"}

func (l *FileLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}

	blocks := splitBlocks(string(data))
	questions := make([]domain.Question, 0, len(blocks))
	for _, block := range blocks {
		q, ok := parseBlock(block, len(questions)+1)
		if !ok {
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return questions, nil
}

func splitBlocks(content string) []string {
	raw := strings.Split(strings.TrimSpace(content), "---")
	blocks := make([]string, 0, len(raw))
	for _, b := range raw {
		if s := strings.TrimSpace(b); s != "" {
			blocks = append(blocks, s)
		}
	}
	return blocks
}

func parseBlock(block string, ordinal int) (domain.Question, bool) {
	fields := map[string]string{}
	var currentKey string
	var currentValue []string

	flush := func() {
		if currentKey != "" {
			fields[currentKey] = strings.TrimSpace(strings.Join(currentValue, "\n"))
			currentValue = nil
		}
	}

	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if key, rest, ok := matchKey(line); ok {
			flush()
			currentKey = key
			currentValue = []string{rest}
			continue
		}
		if currentKey != "" {
			currentValue = append(currentValue, strings.TrimRight(line, " \t"))
		}
	}
	flush()

	if fields["text"] == "" || fields["answer"] == "" {
		return domain.Question{}, false
	}

	q := domain.Question{
		ID:        fmt.Sprintf("q%d", ordinal),
		Title:     fields["title"],
		Text:      fields["text"],
		Answer:    fields["answer"],
		Hint:      fields["hint"],
		Score:     1,
		TimeLimit: 60,
	}
	if q.Title == "" {
		q.Title = fmt.Sprintf("Question %d", ordinal)
	}
	if q.Hint == "" {
		q.Hint = "No hint available."
	}
	if raw, ok := fields["score"]; ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Question{}, false
		}
		q.Score = n
	}
	if raw, ok := fields["time_limit"]; ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Question{}, false
		}
		q.TimeLimit = n
	}
	return q, true
}

func matchKey(line string) (key, rest string, ok bool) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	for _, k := range blockKeys {
		if strings.HasPrefix(lower, k+":") {
			return k, strings.TrimSpace(trimmed[len(k)+1:]), true
		}
	}
	return "", "", false
}
