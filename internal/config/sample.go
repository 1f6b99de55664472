package config

// SampleYAML 是 `vstitch init` 写出的示例配置；所有字段都是可选的，未写的字段取默认值。
const SampleYAML = `# vstitch 配置（可选）。优先级：CLI > 环境变量 > .env > 本文件 > 默认值。

# 投稿表，相对 data/ 目录；扩展名 .html/.htm 时按 HTML 表格解析。
data_file: data.csv
# data_url: https://example.org/papers.csv

columns:
  id: id
  title: title
  authors: authors-names
  session: session_code

# 只保留满足条件的行（去空白、大小写不敏感）。
# filters:
#   format: poster
#   presence: remote

id_prefix: nime2025_
output_prefix: video_
output_ext: .mp4
title_with_authors: false
thumbnail: false

video:
  width: 1920
  height: 1080
  fps: 30
  font: Roboto
  font_size: 60

loudness:
  i: -23
  lra: 7
  tp: -2

concurrency: 2
log_level: info

# publish:
#   endpoint: play.min.io
#   bucket: nime2025
#   prefix: sessions
#   use_ssl: true
`
