package upload

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/hitoshi/zemong/internal/model"
)

// allowedImageTypes はアップロードを受け付ける画像形式。
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Image はデコード済みの画像。
type Image struct {
	Data        []byte
	ContentType string
}

// Preview は画面にそのまま埋め込めるdata URLを返す。
func (img Image) Preview() string {
	return "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// DecodeImage は生のバイト列またはdata URLを画像としてデコードする。
// 形式は中身から判定し、宣言されたMIMEタイプは信用しない。
func DecodeImage(input []byte, maxSize int64) (Image, error) {
	data := input
	if bytes.HasPrefix(input, []byte("data:")) {
		decoded, err := decodeDataURL(string(input))
		if err != nil {
			return Image{}, err
		}
		data = decoded
	}

	if len(data) == 0 {
		return Image{}, model.NewInvalidImageError("空のファイルです")
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return Image{}, model.NewImageTooLargeError(maxSize)
	}

	ct := http.DetectContentType(data)
	if !allowedImageTypes[ct] {
		return Image{}, model.NewInvalidImageError("対応していない形式です: " + ct)
	}
	return Image{Data: data, ContentType: ct}, nil
}

func decodeDataURL(s string) ([]byte, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return nil, model.NewInvalidImageError("data URLの形式が不正です")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, model.NewInvalidImageError("base64以外のdata URLには対応していません")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, model.NewInvalidImageError("base64のデコードに失敗しました")
	}
	return data, nil
}
