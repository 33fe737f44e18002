// Package config loads and validates the planner's YAML tuning document
// and translates it into the concrete option structs the strategy, star,
// and costmap packages consume.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"avoidance-planner/costmap"
	"avoidance-planner/star"
	"avoidance-planner/strategy"
)

// LiveConfig controls UDP ingestion of pose/velocity/cloud packets.
type LiveConfig struct {
	PoseAddr   string   `yaml:"pose_addr"`
	CloudAddrs []string `yaml:"cloud_addrs"`
	ReadBuffer int      `yaml:"read_buffer"`
}

// OutputConfig controls UDP publication of the planner output.
type OutputConfig struct {
	UDPAddr          string `yaml:"udp_addr"`
	SendObstaclesFCU bool   `yaml:"send_obstacles_fcu"`
}

// LogConfig controls console logging.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// MetricsConfig controls the optional expvar debug endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PlannerConfig bundles every tunable enumerated in the external
// interfaces list, flattened into one YAML section.
type PlannerConfig struct {
	AlphaRes        int     `yaml:"alpha_res"`
	BoxRadius       float64 `yaml:"box_radius"`
	GroundClearance float64 `yaml:"ground_clearance"`
	FloorMargin     float64 `yaml:"floor_margin"`

	GoalCostParam          float64 `yaml:"goal_cost_param"`
	HeadingCostParam       float64 `yaml:"heading_cost_param"`
	SmoothCostParam        float64 `yaml:"smooth_cost_param"`
	HeightChangeCostParam  float64 `yaml:"height_change_cost_param"`
	KeepDistance           float64 `yaml:"keep_distance"`
	SmoothingMarginDegrees float64 `yaml:"smoothing_margin_degrees"`

	VelocityAroundObstacles  float64 `yaml:"velocity_around_obstacles"`
	VelocityFarFromObstacles float64 `yaml:"velocity_far_from_obstacles"`
	VelocitySigmoidSlope     float64 `yaml:"velocity_sigmoid_slope"`
	UseVelSetpoints          bool    `yaml:"use_vel_setpoints"`
	SmoothingSpeedXY         float64 `yaml:"smoothing_speed_xy"`
	SmoothingSpeedZ          float64 `yaml:"smoothing_speed_z"`

	ReprojAgeMax          int     `yaml:"reproj_age_max"`
	NoProgressSlope       float64 `yaml:"no_progress_slope"`
	DistInclineWindowSize int     `yaml:"dist_incline_window_size"`

	MinCloudSize   int     `yaml:"min_cloud_size"`
	MinSensorRange float64 `yaml:"min_sensor_range"`
	MinDistBackoff float64 `yaml:"min_dist_backoff"`

	TimeoutCritical    float64 `yaml:"timeout_critical"`
	TimeoutTermination float64 `yaml:"timeout_termination"`

	ChildrenPerNode  int     `yaml:"children_per_node"`
	NExpandedNodes   int     `yaml:"n_expanded_nodes"`
	StepLength       float64 `yaml:"step_length"`
	AcceptanceRadius float64 `yaml:"acceptance_radius"`
	TreeReuseAge     int     `yaml:"tree_reuse_age"`

	GoalZ float64 `yaml:"goal_z"`

	StopInFront     bool `yaml:"stop_in_front"`
	UseBackOff      bool `yaml:"use_back_off"`
	UseVFHStar      bool `yaml:"use_vfh_star"`
	AdaptCostParams bool `yaml:"adapt_cost_params"`

	HFovDeg float64 `yaml:"h_fov_deg"`
	VFovDeg float64 `yaml:"v_fov_deg"`
}

// AppConfig aggregates every configuration section.
type AppConfig struct {
	Hz      float64       `yaml:"hz"`
	Planner PlannerConfig `yaml:"planner"`
	Live    LiveConfig    `yaml:"live"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Load reads and validates the YAML config at path.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects a configuration spec.md §7 calls out as invalid
// ("ALPHA_RES not dividing 360 evenly"), without mutating any existing
// state — callers perform the copy-validate-swap themselves.
func Validate(cfg AppConfig) error {
	res := cfg.Planner.AlphaRes
	if res <= 0 || 360%res != 0 || 180%res != 0 {
		return fmt.Errorf("config: alpha_res %d must evenly divide 180 and 360", res)
	}
	if cfg.Hz <= 0 {
		return fmt.Errorf("config: hz must be > 0")
	}
	if cfg.Planner.HeightChangeCostParam < 0.75 {
		return fmt.Errorf("config: height_change_cost_param must be >= 0.75")
	}
	if cfg.Planner.ChildrenPerNode <= 0 {
		return fmt.Errorf("config: children_per_node must be > 0")
	}
	return nil
}

// CostParams translates the flattened planner section into costmap.Params.
func (c PlannerConfig) CostParams() costmap.Params {
	return costmap.Params{
		GoalCostParam:                c.GoalCostParam,
		HeadingCostParam:             c.HeadingCostParam,
		SmoothCostParam:              c.SmoothCostParam,
		HeightChangeCostParam:        c.HeightChangeCostParam,
		HeightChangeCostParamAdapted: c.HeightChangeCostParam,
		KeepDistance:                 c.KeepDistance,
		SmoothingMarginDegrees:       c.SmoothingMarginDegrees,
	}
}

// StarOptions translates the flattened planner section into star.Options.
func (c PlannerConfig) StarOptions() star.Options {
	return star.Options{
		ChildrenPerNode:  c.ChildrenPerNode,
		NExpandedNodes:   c.NExpandedNodes,
		StepLength:       c.StepLength,
		AcceptanceRadius: c.AcceptanceRadius,
		TreeReuseAge:     c.TreeReuseAge,
		CostParams:       c.CostParams(),
	}
}

// StrategyConfig translates the flattened planner section into
// strategy.Config.
func (c PlannerConfig) StrategyConfig() strategy.Config {
	return strategy.Config{
		AlphaRes:                 c.AlphaRes,
		ReprojAgeMax:             c.ReprojAgeMax,
		BoxRadius:                c.BoxRadius,
		FloorMargin:              c.FloorMargin,
		HFovDeg:                  c.HFovDeg,
		VFovDeg:                  c.VFovDeg,
		MinCloudSize:             c.MinCloudSize,
		MinSensorRange:           c.MinSensorRange,
		MinDistBackoff:           c.MinDistBackoff,
		StopInFrontEnabled:       c.StopInFront,
		UseBackOffEnabled:        c.UseBackOff,
		UseVFHStar:               c.UseVFHStar,
		AdaptCostParams:          c.AdaptCostParams,
		DistInclineWindowSize:    c.DistInclineWindowSize,
		NoProgressSlope:          c.NoProgressSlope,
		CostParams:               c.CostParams(),
		Star:                     c.StarOptions(),
		VelocityAroundObstacles:  c.VelocityAroundObstacles,
		VelocityFarFromObstacles: c.VelocityFarFromObstacles,
	}
}
