package model

// 目录实体（项目 / 课程 / 模块 / 课时）由外部 CRUD 服务维护，引擎只读

type Program struct {
	UUIDBase
	Title string `gorm:"size:255;not null" json:"title"`
}

func (Program) TableName() string {
	return "programs"
}

type Course struct {
	UUIDBase
	ProgramID *string `gorm:"index;type:varchar(36)" json:"programId,omitempty"`
	Title     string  `gorm:"size:255;not null" json:"title"`
	Order     int     `gorm:"default:0" json:"order"`
}

func (Course) TableName() string {
	return "courses"
}

type CourseModule struct {
	UUIDBase
	CourseID string `gorm:"index;type:varchar(36);not null" json:"courseId"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Order    int    `gorm:"default:0" json:"order"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

type Lesson struct {
	UUIDBase
	CourseID string `gorm:"index;type:varchar(36);not null" json:"courseId"`
	ModuleID string `gorm:"index;type:varchar(36);not null" json:"moduleId"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Order    int    `gorm:"default:0" json:"order"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// CourseOutline 课程结构快照，用于懒创建进度树的分母
type CourseOutline struct {
	CourseID  string          `json:"courseId"`
	ProgramID string          `json:"programId,omitempty"`
	Title     string          `json:"title"`
	Modules   []ModuleOutline `json:"modules"`
}

type ModuleOutline struct {
	ModuleID        string `json:"moduleId"`
	Title           string `json:"title"`
	LessonCount     int    `json:"lessonCount"`
	AssessmentCount int    `json:"assessmentCount"`
}

func (o *CourseOutline) Module(moduleID string) (ModuleOutline, bool) {
	for _, m := range o.Modules {
		if m.ModuleID == moduleID {
			return m, true
		}
	}
	return ModuleOutline{}, false
}

func (o *CourseOutline) LessonCount() int {
	n := 0
	for _, m := range o.Modules {
		n += m.LessonCount
	}
	return n
}

func (o *CourseOutline) AssessmentCount() int {
	n := 0
	for _, m := range o.Modules {
		n += m.AssessmentCount
	}
	return n
}

// Placement 课时或测评在目录中的位置
type Placement struct {
	CourseID string
	ModuleID string
	Title    string
}
