// SPDX-License-Identifier: MIT
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

type videoRequest struct {
	URL string `json:"url" binding:"required"`
}

type tickRequest struct {
	Time   *float64 `json:"time" binding:"required"`
	Paused bool     `json:"paused"`
}

type seekRequest struct {
	Time *float64 `json:"time" binding:"required"`
}

// postVideo blocks until the first segment is ready or has failed. Failures
// are reported in the body with 200 so the player never treats them as fatal.
func (s *Server) postVideo(c *gin.Context) {
	var req videoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{}
	if err := s.opts.Player.OnVideoDetected(c.Request.Context(), req.URL); err != nil {
		resp["error"] = err.Error()
	}
	resp["status"] = s.opts.Player.Status()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) postTick(c *gin.Context) {
	var req tickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.opts.Player.OnPlaybackTick(*req.Time, req.Paused)
	c.Status(http.StatusNoContent)
}

func (s *Server) postSeek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.opts.Player.OnSeek(*req.Time)
	c.Status(http.StatusNoContent)
}

func (s *Server) postEnded(c *gin.Context) {
	s.opts.Player.OnVideoEnded()
	c.Status(http.StatusNoContent)
}

func (s *Server) postReset(c *gin.Context) {
	s.opts.Player.Reset()
	c.Status(http.StatusNoContent)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Player.Status())
}

// playerMessage is one inbound websocket message.
type playerMessage struct {
	Type   string  `json:"type"`
	URL    string  `json:"url"`
	Time   float64 `json:"time"`
	Paused bool    `json:"paused"`
}

type errorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type statusReply struct {
	Type   string `json:"type"`
	Status any    `json:"status"`
}

// handleMessage dispatches websocket messages. Video detection runs in the
// background; its outcome arrives as notifications.
func (s *Server) handleMessage(data []byte) any {
	var msg playerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply{Type: "error", Message: "invalid message: " + err.Error()}
	}
	p := s.opts.Player
	switch msg.Type {
	case "video":
		if msg.URL == "" {
			return errorReply{Type: "error", Message: "video message without url"}
		}
		go func() {
			if err := p.OnVideoDetected(context.Background(), msg.URL); err != nil {
				s.logger.Debugf("video session: %v", err)
			}
		}()
	case "tick":
		p.OnPlaybackTick(msg.Time, msg.Paused)
	case "seek":
		p.OnSeek(msg.Time)
	case "ended":
		p.OnVideoEnded()
	case "reset":
		p.Reset()
	case "status":
		return statusReply{Type: "status", Status: p.Status()}
	default:
		return errorReply{Type: "error", Message: "unknown message type " + msg.Type}
	}
	return nil
}
