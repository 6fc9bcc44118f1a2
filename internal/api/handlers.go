package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lshdb-go/lsh"
)

type StoreRequest struct {
	Vectors [][]float32 `json:"vectors"`
}

type StoreResponse struct {
	IDs []uint32 `json:"ids"`
}

type QueryRequest struct {
	Query   []float32 `json:"query"`
	K       int       `json:"k,omitempty"`
	Exclude []uint32  `json:"exclude,omitempty"`
}

type QueryResponse struct {
	IDs     []uint32    `json:"ids,omitempty"`
	Matches []lsh.Match `json:"matches,omitempty"`
}

var index *lsh.LSH[float32]

// Initialize injects the index the handlers serve.
func Initialize(idx *lsh.LSH[float32]) {
	index = idx
}

func HandleStore(c *gin.Context) {
	var payload StoreRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, err := index.StoreVecs(payload.Vectors)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "ids": ids})
		return
	}

	c.JSON(http.StatusOK, StoreResponse{IDs: ids})
}

// HandleQuery returns the raw bucket union when k is 0 or negative, the
// re-ranked top-k otherwise.
func HandleQuery(c *gin.Context) {
	var payload QueryRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if payload.K <= 0 {
		ids, err := index.QueryBucketIDs(payload.Query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, QueryResponse{IDs: ids})
		return
	}

	var opts []lsh.QueryOption
	if len(payload.Exclude) > 0 {
		opts = append(opts, lsh.WithExclude(payload.Exclude...))
	}
	matches, err := index.QueryBucketIDsTopK(payload.Query, payload.K, opts...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, QueryResponse{Matches: matches})
}

func HandleDescribe(c *gin.Context) {
	stats, err := index.Describe()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
