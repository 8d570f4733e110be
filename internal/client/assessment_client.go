package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"assessment-service/internal/constants"
	"assessment-service/internal/models"
	"assessment-service/pkg/cache"
)

// AssessmentClient fetches assessment content (questions, correct answers)
// from the content service, caching fetched assessments in redis so that a
// multi-question attempt does not re-fetch on every answer.
type AssessmentClient struct {
	baseURL     string
	httpClient  *http.Client
	redisClient *cache.RedisClient
}

func NewAssessmentClient(host, port string, redisClient *cache.RedisClient) *AssessmentClient {
	return &AssessmentClient{
		baseURL: fmt.Sprintf("http://%s:%s", host, port),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		redisClient: redisClient,
	}
}

func (c *AssessmentClient) GetAssessment(ctx context.Context, assessmentID string) (*models.Assessment, error) {
	cacheKey := fmt.Sprintf("%s:%s", constants.AssessmentCacheKeyPrefix, assessmentID)

	if c.redisClient != nil {
		cached, err := c.redisClient.Get(ctx, cacheKey)
		if err == nil {
			var assessment models.Assessment
			if err := json.Unmarshal([]byte(cached), &assessment); err == nil {
				return &assessment, nil
			}
			log.Printf("Failed to decode cached assessment %s, refetching: %v", assessmentID, err)
		}
	}

	url := fmt.Sprintf("%s/internal/assessments/%s", c.baseURL, assessmentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build assessment request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessment %s: %w", assessmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("assessment %s not found", assessmentID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assessment service returned status %d for %s", resp.StatusCode, assessmentID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read assessment response: %w", err)
	}

	var assessment models.Assessment
	if err := json.Unmarshal(body, &assessment); err != nil {
		return nil, fmt.Errorf("failed to decode assessment %s: %w", assessmentID, err)
	}
	if len(assessment.Questions) == 0 {
		return nil, fmt.Errorf("assessment %s has no questions", assessmentID)
	}

	if c.redisClient != nil {
		if err := c.redisClient.Set(ctx, cacheKey, body, constants.AssessmentCacheTTL); err != nil {
			log.Printf("Failed to cache assessment %s: %v", assessmentID, err)
		}
	}

	return &assessment, nil
}
