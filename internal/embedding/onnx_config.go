package embedding

// ONNXConfig locates and shapes an ONNX sentence-embedding model.
type ONNXConfig struct {
	ModelPath string
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
	// OutputName is the pooled output tensor, shaped [1, Dimensions].
	OutputName string
	Dimensions int
	MaxTokens  int
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 768
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	return c
}
