package utils

import (
	"fmt"
	"net/http"
)

// SetupTextStreamHeaders 设置纯文本流式响应头。
func SetupTextStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteTextChunk 写出一个文本增量并立即刷新。
// 客户端断开后写入会失败，调用方据此停止转发（生成结果的处置由上游决定）。
func WriteTextChunk(w http.ResponseWriter, flusher http.Flusher, chunk string) error {
	if chunk == "" {
		return nil
	}
	if _, err := fmt.Fprint(w, chunk); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
