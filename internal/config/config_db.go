package config

// Database 数据库连接配置（从 YAML 读取的原始结构）
// Driver 支持 mysql / postgres / sqlite，sqlite 使用 File
type Database struct {
	Driver   string            `yaml:"driver" json:"driver" env:"DB_DRIVER"`
	Host     string            `yaml:"host" json:"host" env:"DB_HOST"`
	Port     int               `yaml:"port" json:"port" env:"DB_PORT"`
	User     string            `yaml:"user" json:"user" env:"DB_USER"`
	Password string            `yaml:"password" json:"password" env:"DB_PASSWORD"`
	Name     string            `yaml:"name" json:"name" env:"DB_NAME"`
	File     string            `yaml:"file" json:"file" env:"DB_FILE"`
	Params   map[string]string `yaml:"params" json:"params"`
}
