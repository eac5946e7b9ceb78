package model

// AllModels 需要 AutoMigrate 的全部表
func AllModels() []interface{} {
	return []interface{}{
		&Mall{},
		&Monitor{},
		&Order{},
		&Item{},
	}
}
