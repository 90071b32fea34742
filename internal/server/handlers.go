package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"containeryard/internal/logquery"
	"containeryard/internal/metrics"
)

// defaultLogLimit bounds /api/logs responses when the client gives no limit.
const defaultLogLimit = 500

// streamHeartbeat is how often an SSE comment is sent to keep idle
// connections alive through proxies.
const streamHeartbeat = 15 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"published":   stats.Published,
		"dropped":     stats.Dropped,
		"subscribers": stats.Subscribers,
		"history":     gin.H{"len": stats.HistoryLen, "cap": stats.HistoryCap},
	})
}

// tokenBadge is the wire form of one parsed token, shaped for the query bar
// UI: kind and negated drive the badge style, label is the display text, and
// the kind-specific fields feed tooltips.
type tokenBadge struct {
	Kind    string   `json:"kind"`
	Negated bool     `json:"negated"`
	Label   string   `json:"label"`
	Key     string   `json:"key,omitempty"`
	Value   string   `json:"value,omitempty"`
	Start   string   `json:"start,omitempty"`
	End     string   `json:"end,omitempty"`
	Levels  []string `json:"levels,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Flags   string   `json:"flags,omitempty"`
}

func badge(tok logquery.Token) tokenBadge {
	b := tokenBadge{
		Kind:    tok.Kind(),
		Negated: tok.IsNegated(),
		Label:   tok.Label(),
	}
	switch t := tok.(type) {
	case logquery.FieldToken:
		b.Key = t.Key
		b.Value = t.Value
	case logquery.RangeToken:
		b.Key = t.Key
		b.Start = t.Start
		b.End = t.End
	case logquery.LevelToken:
		for _, lvl := range t.Levels {
			b.Levels = append(b.Levels, lvl.String())
		}
	case logquery.RegexToken:
		b.Pattern = t.Pattern
		b.Flags = t.Flags
	case logquery.TextToken:
		b.Value = t.Value
	}
	return b
}

func (s *Server) handleQuery(c *gin.Context) {
	raw := c.Query("q")
	query := logquery.Parse(raw)

	badges := make([]tokenBadge, 0, len(query.Tokens))
	for _, tok := range query.Tokens {
		badges = append(badges, badge(tok))
	}

	c.JSON(http.StatusOK, gin.H{
		"query":  raw,
		"tokens": badges,
	})
}

func (s *Server) handleLogs(c *gin.Context) {
	query := logquery.Parse(c.Query("q"))

	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		if n > 0 {
			limit = n
		}
	}

	records := s.hub.Recent(query, limit)
	c.JSON(http.StatusOK, gin.H{
		"query":   query.String(),
		"count":   len(records),
		"records": records,
	})
}

// handleStream serves matching records as server-sent events until the
// client disconnects. One hub subscription per connection.
func (s *Server) handleStream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	query := logquery.Parse(c.Query("q"))
	sub := s.hub.Subscribe(query, 0)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info("stream opened", "subscriber", sub.Name, "query", query.String())
	defer s.logger.Info("stream closed", "subscriber", sub.Name, "dropped", sub.Dropped())

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case rec := <-sub.C:
			c.SSEvent("log", rec)
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := c.Writer.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleMetrics(c *gin.Context) {
	samples := []metrics.Sample{}
	if s.metrics != nil {
		samples = s.metrics.History()
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(samples),
		"samples": samples,
	})
}
