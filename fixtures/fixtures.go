package fixtures

import (
	_ "embed"
)

//go:embed config/config.yaml.template
var ConfigTemplate []byte

//go:embed cases/roiaware_pool3d_backward_max.yaml
var CaseMaxPool []byte

//go:embed cases/roiaware_pool3d_backward_avg.yaml
var CaseAvgPool []byte

//go:embed cases/roiaware_pool3d_backward_random.yaml
var CaseRandom []byte
