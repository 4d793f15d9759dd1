// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package settings

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/xlab/treeprint"
)

const redactedValue = "[redacted]"

// Tree renders the settings as a tree. Secrets and url passwords are
// redacted.
func (s Settings) Tree() string {
	tree := treeprint.NewWithRoot("settings")

	b := tree.AddBranch("llm")
	b.AddMetaNode("api_key", redact(s.LLM.APIKey))
	b.AddMetaNode("api_url", s.LLM.APIURL)
	b.AddMetaNode("model", s.LLM.Model)

	b = tree.AddBranch("database")
	b.AddMetaNode("postgres_url", redactURL(s.Database.PostgresURL))
	b.AddMetaNode("redis_url", redactURL(s.Database.RedisURL))
	b.AddMetaNode("elasticsearch_url", redactURL(s.Database.ElasticsearchURL))

	b = tree.AddBranch("tasks")
	b.AddMetaNode("broker_url", redactURL(s.Tasks.BrokerURL))
	b.AddMetaNode("result_backend", redactURL(s.Tasks.ResultBackend))

	b = tree.AddBranch("analysis")
	b.AddMetaNode("supported_platforms", strings.Join(s.Analysis.SupportedPlatforms, ", "))
	b.AddMetaNode("max_content_length", strconv.Itoa(s.Analysis.MaxContentLength))
	b.AddMetaNode("cache_timeout", s.Analysis.CacheTimeout.String())
	b.AddMetaNode("analysis_timeout", s.Analysis.AnalysisTimeout.String())

	b = tree.AddBranch("security")
	b.AddMetaNode("requests_per_minute", strconv.Itoa(s.Security.RequestsPerMinute))
	b.AddMetaNode("burst_size", strconv.Itoa(s.Security.BurstSize))
	b.AddMetaNode("api_key_header", s.Security.APIKeyHeader)
	origins := b.AddBranch("cors_origins")
	for _, o := range s.Security.CORSOrigins {
		origins.AddNode(o)
	}

	b = tree.AddBranch("bilibili")
	b.AddMetaNode("api_base", s.Bilibili.APIBase)
	b.AddMetaNode("user_agent", s.Bilibili.UserAgent)
	b.AddMetaNode("referer", s.Bilibili.Referer)
	b.AddMetaNode("timeout", s.Bilibili.Timeout.String())
	b.AddMetaNode("retry_times", strconv.Itoa(s.Bilibili.RetryTimes))
	b.AddMetaNode("retry_delay", s.Bilibili.RetryDelay.String())

	b = tree.AddBranch("image_proxy")
	allow := b.AddBranch("allow_list")
	for _, d := range s.ImageProxy.AllowList {
		allow.AddNode(d)
	}
	b.AddMetaNode("timeout", s.ImageProxy.Timeout.String())
	b.AddMetaNode("fallback_path", s.ImageProxy.FallbackPath)

	return tree.String()
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redactedValue
}

func redactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return redactedValue
	}
	return u.Redacted()
}
