package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/layout"
)

const (
	// ErrCodeNotFound 表示显式指定的 --config 文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件/.env 无法读取或解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	FileName    = "vstitch.yaml"
	EnvFileName = ".env"

	DefaultDataFile     = "data.csv"
	DefaultIDPrefix     = "nime2025_"
	DefaultOutputPrefix = "video_"
	DefaultOutputExt    = ".mp4"
	DefaultFFmpegPath   = "ffmpeg"
	DefaultLogLevel     = "info"
	DefaultConcurrency  = 2
	MaxConcurrency      = 16
)

// CLIArgs 保留“是否显式指定”的信息，保证 --dry-run=false 能覆盖配置里的 dry_run: true。
type CLIArgs struct {
	Path       string
	ConfigFile string

	DryRun    bool
	DryRunSet bool

	Concurrency    int
	ConcurrencySet bool

	LogLevel string
}

// FileConfig 对应 vstitch.yaml 的解析结构（JSON 也是合法 YAML）。
type FileConfig struct {
	DataFile string            `yaml:"data_file"`
	DataURL  string            `yaml:"data_url"`
	Source   string            `yaml:"source"`
	Columns  Columns           `yaml:"columns"`
	Filters  map[string]string `yaml:"filters"`

	IDPrefix     *string `yaml:"id_prefix"`
	OutputPrefix *string `yaml:"output_prefix"`
	OutputExt    string  `yaml:"output_ext"`

	TitleWithAuthors bool `yaml:"title_with_authors"`
	Thumbnail        bool `yaml:"thumbnail"`

	Video    VideoConfig    `yaml:"video"`
	Loudness LoudnessConfig `yaml:"loudness"`

	Concurrency int    `yaml:"concurrency"`
	DryRun      *bool  `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`
	ProxyURL    string `yaml:"proxy_url"`
	FFmpegPath  string `yaml:"ffmpeg_path"`

	Publish PublishConfig `yaml:"publish"`
}

// Columns 把数据表的列名映射到 Submission 字段。
type Columns struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Authors string `yaml:"authors"`
	Session string `yaml:"session"`
}

type VideoConfig struct {
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FPS      int    `yaml:"fps"`
	Font     string `yaml:"font"`
	FontSize int    `yaml:"font_size"`
}

type LoudnessConfig struct {
	I   float64 `yaml:"i"`
	LRA float64 `yaml:"lra"`
	TP  float64 `yaml:"tp"`
}

// PublishConfig 是 S3 兼容存储（MinIO）的上传配置；Endpoint 为空表示不启用。
type PublishConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    *bool  `yaml:"use_ssl"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Paths layout.Paths

	ConfigFile string // 实际读取的配置文件；未读取时为空

	DataFile string // 绝对路径
	DataURL  string
	Source   string // "csv" | "html"
	Columns  Columns
	Filters  map[string]string

	IDPrefix     string
	OutputPrefix string
	OutputExt    string

	TitleWithAuthors bool
	Thumbnail        bool

	Render domain.RenderSettings

	Concurrency int
	DryRun      bool
	LogLevel    string
	ProxyURL    string
	FFmpegPath  string

	Publish Publish
}

type Publish struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// Enabled 表示是否配置了上传目标。
func (p Publish) Enabled() bool { return p.Endpoint != "" }

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) root = CLI path（相对 cwd）或 cwd
// 2) 配置文件：--config 指定则必须存在；否则 <root>/vstitch.yaml 可选
// 3) <root>/.env 可选（只读取，不写入进程环境）
//
// 覆盖优先级（固定）：CLI > 进程环境变量 > .env > 配置文件 > 默认值
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	root := cwdAbs
	if strings.TrimSpace(cli.Path) != "" {
		root = absCleanFrom(cwdAbs, cli.Path)
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(cli.ConfigFile) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(root, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}
	if !exists {
		cfgPath = ""
	}

	envPath := filepath.Join(root, EnvFileName)
	dotenv, err := readDotEnv(envPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
	}

	eff, err := merge(root, cli, fc, layeredEnv(dotenv))
	if err != nil {
		p := cfgPath
		if p == "" {
			p = root
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}
	eff.ConfigFile = cfgPath
	return eff, nil
}

type envLookup func(key string) (string, bool)

// layeredEnv：进程环境变量优先，其次 .env。
func layeredEnv(dotenv map[string]string) envLookup {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		if v, ok := dotenv[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		return "", false
	}
}

func merge(root string, cli CLIArgs, fc FileConfig, env envLookup) (EffectiveConfig, error) {
	paths := layout.For(root)

	dataFile := strings.TrimSpace(fc.DataFile)
	if dataFile == "" {
		dataFile = DefaultDataFile
	}
	dataFile = absCleanFrom(paths.Data, dataFile)

	dataURL := strings.TrimSpace(fc.DataURL)
	if v, ok := env("VSTITCH_DATA_URL"); ok {
		dataURL = v
	}
	if dataURL != "" {
		u, err := url.Parse(dataURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("data_url 必须是 http/https 地址：%q", dataURL)
		}
	}

	source := strings.ToLower(strings.TrimSpace(fc.Source))
	if source == "" {
		source = inferSource(dataFile)
	}
	if source != "csv" && source != "html" {
		return EffectiveConfig{}, fmt.Errorf("source 只能是 csv 或 html，实际是 %q", fc.Source)
	}

	cols := Columns{
		ID:      orDefault(fc.Columns.ID, "id"),
		Title:   orDefault(fc.Columns.Title, "title"),
		Authors: orDefault(fc.Columns.Authors, "authors-names"),
		Session: orDefault(fc.Columns.Session, "session_code"),
	}

	filters := make(map[string]string, len(fc.Filters))
	for k, v := range fc.Filters {
		k = strings.TrimSpace(k)
		if k == "" {
			return EffectiveConfig{}, errors.New("filters 的列名不能为空")
		}
		filters[k] = strings.TrimSpace(v)
	}

	idPrefix := DefaultIDPrefix
	if fc.IDPrefix != nil {
		idPrefix = strings.TrimSpace(*fc.IDPrefix)
	}
	outPrefix := DefaultOutputPrefix
	if fc.OutputPrefix != nil {
		outPrefix = strings.TrimSpace(*fc.OutputPrefix)
	}
	if strings.ContainsAny(outPrefix, `/\`) {
		return EffectiveConfig{}, fmt.Errorf("output_prefix 不能包含路径分隔符：%q", outPrefix)
	}

	outExt := strings.ToLower(strings.TrimSpace(fc.OutputExt))
	if outExt == "" {
		outExt = DefaultOutputExt
	}
	if !strings.HasPrefix(outExt, ".") {
		outExt = "." + outExt
	}
	switch outExt {
	case ".mp4", ".mkv", ".mov":
	default:
		return EffectiveConfig{}, fmt.Errorf("output_ext 只能是 .mp4/.mkv/.mov，实际是 %q", fc.OutputExt)
	}

	render, err := mergeRender(fc.Video, fc.Loudness)
	if err != nil {
		return EffectiveConfig{}, err
	}

	// concurrency：CLI > env > config > 默认；超出范围截断。
	concurrency := fc.Concurrency
	if v, ok := env("VSTITCH_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("VSTITCH_CONCURRENCY 不是整数：%q", v)
		}
		concurrency = n
	}
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	dryRun := false
	if cli.DryRunSet {
		dryRun = cli.DryRun
	} else if fc.DryRun != nil {
		dryRun = *fc.DryRun
	}

	logLevel := strings.ToLower(strings.TrimSpace(fc.LogLevel))
	if v, ok := env("VSTITCH_LOG_LEVEL"); ok {
		logLevel = strings.ToLower(v)
	}
	if strings.TrimSpace(cli.LogLevel) != "" {
		logLevel = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return EffectiveConfig{}, fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", logLevel)
	}

	proxyURL := strings.TrimSpace(fc.ProxyURL)
	if v, ok := env("HTTP_PROXY_URL"); ok {
		proxyURL = v
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, fmt.Errorf("proxy_url 无效：%w", err)
		}
	}

	ffmpegPath := strings.TrimSpace(fc.FFmpegPath)
	if v, ok := env("FFMPEG_PATH"); ok {
		ffmpegPath = v
	}
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpegPath
	}

	pub, err := mergePublish(fc.Publish, env)
	if err != nil {
		return EffectiveConfig{}, err
	}

	return EffectiveConfig{
		Paths:            paths,
		DataFile:         dataFile,
		DataURL:          dataURL,
		Source:           source,
		Columns:          cols,
		Filters:          filters,
		IDPrefix:         idPrefix,
		OutputPrefix:     outPrefix,
		OutputExt:        outExt,
		TitleWithAuthors: fc.TitleWithAuthors,
		Thumbnail:        fc.Thumbnail,
		Render:           render,
		Concurrency:      concurrency,
		DryRun:           dryRun,
		LogLevel:         logLevel,
		ProxyURL:         proxyURL,
		FFmpegPath:       ffmpegPath,
		Publish:          pub,
	}, nil
}

func mergeRender(v VideoConfig, l LoudnessConfig) (domain.RenderSettings, error) {
	rs := domain.DefaultRenderSettings()
	if v.Width != 0 {
		rs.Width = v.Width
	}
	if v.Height != 0 {
		rs.Height = v.Height
	}
	if v.FPS != 0 {
		rs.FPS = v.FPS
	}
	if strings.TrimSpace(v.Font) != "" {
		rs.Font = strings.TrimSpace(v.Font)
	}
	if v.FontSize != 0 {
		rs.FontSize = v.FontSize
	}
	if l.I != 0 {
		rs.LoudnessI = l.I
	}
	if l.LRA != 0 {
		rs.LoudnessLRA = l.LRA
	}
	if l.TP != 0 {
		rs.LoudnessTP = l.TP
	}

	// 常见编码器要求偶数宽高。
	if rs.Width < 16 || rs.Height < 16 || rs.Width%2 != 0 || rs.Height%2 != 0 {
		return rs, fmt.Errorf("video 宽高必须是 >=16 的偶数：%dx%d", rs.Width, rs.Height)
	}
	if rs.FPS < 1 || rs.FPS > 120 {
		return rs, fmt.Errorf("video.fps 超出范围 [1, 120]：%d", rs.FPS)
	}
	if rs.FontSize < 1 || 2*rs.FontSize > rs.Height {
		return rs, fmt.Errorf("video.font_size 无效：%d", rs.FontSize)
	}
	// loudnorm 的合法范围。
	if rs.LoudnessI < -70 || rs.LoudnessI > -5 {
		return rs, fmt.Errorf("loudness.i 超出范围 [-70, -5]：%v", rs.LoudnessI)
	}
	if rs.LoudnessLRA < 1 || rs.LoudnessLRA > 50 {
		return rs, fmt.Errorf("loudness.lra 超出范围 [1, 50]：%v", rs.LoudnessLRA)
	}
	if rs.LoudnessTP < -9 || rs.LoudnessTP > 0 {
		return rs, fmt.Errorf("loudness.tp 超出范围 [-9, 0]：%v", rs.LoudnessTP)
	}
	return rs, nil
}

func mergePublish(pc PublishConfig, env envLookup) (Publish, error) {
	p := Publish{
		Endpoint:  strings.TrimSpace(pc.Endpoint),
		AccessKey: strings.TrimSpace(pc.AccessKey),
		SecretKey: strings.TrimSpace(pc.SecretKey),
		Bucket:    strings.TrimSpace(pc.Bucket),
		Region:    strings.TrimSpace(pc.Region),
		Prefix:    strings.Trim(strings.TrimSpace(pc.Prefix), "/"),
		UseSSL:    true,
	}
	if pc.UseSSL != nil {
		p.UseSSL = *pc.UseSSL
	}

	for key, dst := range map[string]*string{
		"MINIO_ENDPOINT":   &p.Endpoint,
		"MINIO_ACCESS_KEY": &p.AccessKey,
		"MINIO_SECRET_KEY": &p.SecretKey,
		"MINIO_BUCKET":     &p.Bucket,
		"MINIO_REGION":     &p.Region,
	} {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	if v, ok := env("MINIO_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Publish{}, fmt.Errorf("MINIO_USE_SSL 不是布尔值：%q", v)
		}
		p.UseSSL = b
	}

	if p.Endpoint == "" {
		return p, nil
	}
	if strings.Contains(p.Endpoint, "://") {
		return Publish{}, fmt.Errorf("publish.endpoint 只写 host[:port]，不带协议：%q", p.Endpoint)
	}
	if p.Bucket == "" {
		return Publish{}, errors.New("publish.endpoint 已设置但 publish.bucket 为空")
	}
	return p, nil
}

func inferSource(dataFile string) string {
	switch strings.ToLower(filepath.Ext(dataFile)) {
	case ".html", ".htm":
		return "html"
	default:
		return "csv"
	}
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return filepath.Clean(base)
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readDotEnv 只解析 .env，不修改进程环境（便于测试与多次加载）。
func readDotEnv(path string) (map[string]string, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return m, nil
}
