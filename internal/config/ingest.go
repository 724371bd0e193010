package config

// IngestConfig controls how uploaded documents are turned into text.
type IngestConfig struct {
	TesseractBin   string `toml:"tesseract_bin"`
	Languages      string `toml:"languages"`
	OCREndpoint    string `toml:"ocr_endpoint"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}
