// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/contentscope/gateway/pkg/imgproxy"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	elems := map[string]string{
		"https://i0.hdslb.com/bfs/face/a.jpg":        "https://i0.hdslb.com/bfs/face/a.jpg",
		"i1.hdslb.com/bfs/archive/b.png@200w.webp":   "https://i1.hdslb.com/bfs/archive/b.png@200w.webp",
		"https://i0.hdslb.com/x.jpg?token=a%2Fb&w=1": "https://i0.hdslb.com/x.jpg?token=a%2Fb&w=1",
	}
	for in, want := range elems {
		enc, err := encodeURL("http://localhost:8000/", in, imgproxy.DefaultAllowList, false)
		assert.NilError(t, err, in)
		dec, err := decodeURL(enc, imgproxy.DefaultAllowList)
		assert.Check(t, err, in)
		assert.Check(t, is.Equal(want, dec), in)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	enc, err := encodeURL("", "https://i0.hdslb.com/a.jpg", imgproxy.DefaultAllowList, false)
	assert.NilError(t, err)
	assert.Check(t, is.Equal("/proxy/image/https:%2F%2Fi0.hdslb.com%2Fa.jpg", enc))

	_, err = encodeURL("", "https://example.org/a.jpg", imgproxy.DefaultAllowList, false)
	var ve *imgproxy.ValidationError
	assert.Check(t, errors.As(err, &ve))

	enc, err = encodeURL("", "https://example.org/a.jpg", imgproxy.DefaultAllowList, true)
	assert.NilError(t, err)
	assert.Check(t, is.Equal("/proxy/image/https:%2F%2Fexample.org%2Fa.jpg", enc))

	_, err = encodeURL("", "", imgproxy.DefaultAllowList, false)
	assert.Check(t, is.ErrorContains(err, "no url"))
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	_, err := decodeURL("http://localhost:8000/static/a.png", imgproxy.DefaultAllowList)
	assert.Check(t, is.ErrorContains(err, "does not start with"))

	_, err = decodeURL("http://localhost:8000/proxy/image/https:%2F%2Fexample.org%2Fa.jpg", imgproxy.DefaultAllowList)
	var ve *imgproxy.ValidationError
	assert.Check(t, errors.As(err, &ve))
}

func TestDecodeQueryIsNotValidated(t *testing.T) {
	t.Parallel()
	_, err := decodeURL("http://localhost:8000/proxy/image/evil.com%2Fx.jpg?bilibili.com", imgproxy.DefaultAllowList)
	var ve *imgproxy.ValidationError
	assert.Check(t, errors.As(err, &ve))

	dec, err := decodeURL("http://localhost:8000/proxy/image/i0.hdslb.com%2Fa.png?sig=a%26b", imgproxy.DefaultAllowList)
	assert.NilError(t, err)
	assert.Check(t, is.Equal("https://i0.hdslb.com/a.png?sig=a%26b", dec))
}
