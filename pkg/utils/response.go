package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// errorBody 是统一的错误响应载荷。
type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// RespondJSON 写出 JSON 响应体。编码失败时降级为 500，不发送半截载荷。
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[http] failed to encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Printf("[http] failed to write response: %v", err)
	}
}

// RespondError 以统一载荷写出错误响应。
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, errorBody{Error: message, Status: status})
}
