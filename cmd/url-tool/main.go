// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// url-tool
package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/prometheus/common/version"

	"github.com/contentscope/gateway/pkg/imgproxy"
)

// EncodeCmd holds command options for the encode command
type EncodeCmd struct {
	Prefix string `name:"prefix" short:"p" default:"" help:"Optional gateway base url used by encode output"`
	Force  bool   `name:"force" short:"f" help:"Encode even if the url would be rejected by the allow-list"`
	URL    string `arg:"" name:"URL" help:"Image URL to encode"`
}

// Run runs the encode command
func (cmd *EncodeCmd) Run(cli *CLI) error {
	out, err := encodeURL(cmd.Prefix, cmd.URL, cli.AllowList, cmd.Force)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// DecodeCmd holds command options for the decode command
type DecodeCmd struct {
	URL string `arg:"" name:"URL" help:"Gateway proxy URL to decode"`
}

// Run runs the decode command
func (cmd *DecodeCmd) Run(cli *CLI) error {
	target, err := decodeURL(cmd.URL, cli.AllowList)
	if err != nil {
		return err
	}
	fmt.Println(target)
	return nil
}

// encodeURL returns the gateway proxy url for target.
func encodeURL(prefix, target string, allowList []string, force bool) (string, error) {
	if len(target) == 0 {
		return "", errors.New("no url argument provided")
	}
	if !force {
		if _, err := imgproxy.Validate(url.PathEscape(target), allowList); err != nil {
			return "", err
		}
	}
	return strings.TrimRight(prefix, "/") + imgproxy.DefaultPathPrefix + url.PathEscape(target), nil
}

// decodeURL returns the normalized image url a gateway proxy url points
// at, the same way the gateway would resolve it.
func decodeURL(raw string, allowList []string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	escaped := u.EscapedPath()
	i := strings.Index(escaped, imgproxy.DefaultPathPrefix)
	if i < 0 {
		return "", fmt.Errorf("url path does not start with %s", imgproxy.DefaultPathPrefix)
	}
	target, err := imgproxy.Validate(escaped[i+len(imgproxy.DefaultPathPrefix):], allowList)
	if err != nil {
		return "", err
	}
	return imgproxy.WithQuery(target, u.RawQuery), nil
}

// CLI holds the global options and subcommands
type CLI struct {
	// global options
	Version   kong.VersionFlag `name:"version" short:"V" help:"Print version information and quit"`
	AllowList []string         `name:"allow" short:"a" env:"IMAGE_PROXY_ALLOW_LIST" help:"Allowed domain substring. Defaults to the gateway's built in list"`

	// subcommands
	Encode EncodeCmd `cmd:"" aliases:"enc" help:"Encode an image url as a gateway proxy url and print result"`
	Decode DecodeCmd `cmd:"" aliases:"dec" help:"Decode a gateway proxy url and print the image url"`
}

// #nosec G104
func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("url-tool"),
		kong.Description("A simple way to work with gateway image proxy URLs from the command line"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Print("url-tool")},
	)
	if len(cli.AllowList) == 0 {
		cli.AllowList = imgproxy.DefaultAllowList
	}
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
