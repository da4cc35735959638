package service

import (
	"github.com/bytedance/sonic"
)

// cached values are JSON, std compatible so other readers of the cache can decode them
var codec = sonic.ConfigStd

func encode(v any) (string, error) {
	return codec.MarshalToString(v)
}

func decode(s string, v any) error {
	return codec.UnmarshalFromString(s, v)
}
