// Package ruby 为日文文本做合成前的规范化，并为汉字插入振假名（ruby）注音。
package ruby

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"golang.org/x/text/unicode/norm"

	"github.com/iabetor/jatts/internal/logger"
)

// Normalize 对输入文本做 NFKC 规范化：全角英数转半角、半角片假名转全角，
// 统一换行并去除首尾空白。
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = norm.NFKC.String(text)
	return strings.TrimSpace(text)
}

// Annotator 使用 kagome 形态素分析为含汉字的词插入 <ruby>漢字<rt>かんじ</rt></ruby> 注音。
type Annotator struct {
	tok *tokenizer.Tokenizer
}

// NewAnnotator 加载 IPA 词典并创建注音器。词典较大，应在进程启动时创建一次。
func NewAnnotator() (*Annotator, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("[ruby] 初始化分词器失败: %w", err)
	}
	logger.Info("[ruby] IPA 词典已加载")
	return &Annotator{tok: t}, nil
}

// Annotate 返回插入注音后的文本。不含汉字的文本原样返回。
func (a *Annotator) Annotate(text string) string {
	if !containsKanji(text) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) * 2)

	pos := 0
	for _, tok := range a.tok.Tokenize(text) {
		// 分词器可能跳过空白，按字节位置补回原文
		if tok.Position > pos && tok.Position <= len(text) {
			b.WriteString(text[pos:tok.Position])
		}
		if tok.Position < pos {
			continue
		}

		surface := tok.Surface
		reading, ok := tok.Reading()
		if ok && containsKanji(surface) && reading != "" && reading != "*" {
			writeRuby(&b, surface, toHiragana(reading))
		} else {
			b.WriteString(surface)
		}
		pos = tok.Position + len(surface)
	}
	if pos < len(text) {
		b.WriteString(text[pos:])
	}
	return b.String()
}

// writeRuby 写出一个词的注音。词首、词尾与读音一致的假名（送り仮名）放在 ruby 之外。
func writeRuby(b *strings.Builder, surface, reading string) {
	prefix, core, suffix, coreReading := splitOkurigana(surface, reading)
	b.WriteString(prefix)
	if core != "" {
		b.WriteString("<ruby>")
		b.WriteString(core)
		b.WriteString("<rt>")
		b.WriteString(coreReading)
		b.WriteString("</rt></ruby>")
	}
	b.WriteString(suffix)
}

// splitOkurigana 把 surface 拆成 前缀假名 / 含汉字主体 / 后缀假名，
// 并从 reading 中去掉对应部分。读音无法对齐时整体注音。
func splitOkurigana(surface, reading string) (prefix, core, suffix, coreReading string) {
	s := []rune(surface)
	r := []rune(reading)

	i := 0
	for i < len(s) && i < len(r) && isKana(s[i]) && hiraganaOf(s[i]) == r[i] {
		i++
	}
	j := 0
	for j < len(s)-i && j < len(r)-i && isKana(s[len(s)-1-j]) && hiraganaOf(s[len(s)-1-j]) == r[len(r)-1-j] {
		j++
	}

	coreRunes := s[i : len(s)-j]
	readingRunes := r[i : len(r)-j]
	if len(coreRunes) == 0 || len(readingRunes) == 0 {
		return "", surface, "", reading
	}
	return string(s[:i]), string(coreRunes), string(s[len(s)-j:]), string(readingRunes)
}

// toHiragana 将片假名转换为平假名，其它字符保持不变。
func toHiragana(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(hiraganaOf(r))
	}
	return b.String()
}

func hiraganaOf(r rune) rune {
	// ァ(U+30A1) 到 ヶ(U+30F6) 与平假名相差 0x60
	if r >= 'ァ' && r <= 'ヶ' {
		return r - 0x60
	}
	return r
}

func isKana(r rune) bool {
	return unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}

func containsKanji(s string) bool {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if unicode.Is(unicode.Han, r) {
			return true
		}
		s = s[size:]
	}
	return false
}
