package llm

import (
	"tokasu/internal/config"
	"tokasu/internal/domain"
	"tokasu/internal/httpx"
)

type Config = config.Config
type ClassificationRequest = domain.ClassificationRequest
type ClassificationResult = domain.ClassificationResult

var externalHTTPClient = httpx.ExternalHTTPClient()
