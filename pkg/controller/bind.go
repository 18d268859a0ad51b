package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// InvalidUpdateMessage は許可されていない更新フィールドを含むリクエストへのメッセージ。
const InvalidUpdateMessage = "Invalid update data."

// MaxPatchBytes は更新リクエストのボディとして読み取る最大バイト数。
const MaxPatchBytes = 64 << 10

// PatchTooLargeMessage はボディが MaxPatchBytes を超えた更新リクエストへのメッセージ。
const PatchTooLargeMessage = "request body too large"

// BindJSON はリクエストボディをdstにデコードし、bindingタグで検証する。
// 未知のフィールドは無視する。失敗時は検証エラーを返す。
func BindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return Validation(err.Error())
	}
	return nil
}

// BindPatch は更新リクエストを型付きのパッチ構造体dstにデコードする。
// ボディは MaxPatchBytes までしか読み取らない。
// dstに存在しないフィールドが含まれる場合は InvalidUpdateMessage の検証エラーを返し、
// 呼び出し元は更新を一切行わない。空のボディは変更なしのパッチとして扱う。
func BindPatch(c *gin.Context, dst any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxPatchBytes+1))
	if err != nil {
		return Validation(err.Error())
	}
	if len(body) > MaxPatchBytes {
		return Validation(PatchTooLargeMessage)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return Validation(InvalidUpdateMessage)
	}
	// 2つ目のJSON値が続く場合も不正とする
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Validation(InvalidUpdateMessage)
	}

	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return Validation(err.Error())
	}
	return nil
}
