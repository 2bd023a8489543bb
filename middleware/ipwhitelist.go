package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// IPWhitelist restricts access to the listed IPs or CIDR ranges. An empty
// list allows everyone.
func IPWhitelist(allowed []string) gin.HandlerFunc {
	var (
		exact = make(map[string]struct{})
		nets  []*net.IPNet
	)
	for _, entry := range allowed {
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		exact[entry] = struct{}{}
	}

	return func(c *gin.Context) {
		if len(exact) == 0 && len(nets) == 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if _, ok := exact[clientIP]; ok {
			c.Next()
			return
		}
		if ip := net.ParseIP(clientIP); ip != nil {
			for _, n := range nets {
				if n.Contains(ip) {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
