package seed

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}

var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "霞", "飞", "玲", "超",
	"华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌", "庆",
	"建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

var jobTitles = []string{
	"Software Engineer", "QA Engineer", "Product Manager", "HR Specialist",
	"Accountant", "Designer", "Support Agent", "Sales Executive",
}

const digits = "0123456789"

// Generator produces plausible employees. It is not safe for concurrent use.
type Generator struct {
	rng         *rand.Rand
	emailDomain string
}

func NewGenerator(rng *rand.Rand, emailDomain string) *Generator {
	return &Generator{rng: rng, emailDomain: emailDomain}
}

func (g *Generator) ChineseName() string {
	surname := commonSurnames[g.rng.Intn(len(commonSurnames))]
	nameLength := g.rng.Intn(2) + 1

	var name strings.Builder
	name.WriteString(surname)
	for i := 0; i < nameLength; i++ {
		name.WriteString(commonNameCharacters[g.rng.Intn(len(commonNameCharacters))])
	}
	return name.String()
}

// LocalPart turns a Chinese name into an e-mail local part: a prefix of each syllable's
// pinyin followed by a few digits, e.g. 王伟 -> wangw42.
func (g *Generator) LocalPart(chineseName string) string {
	var local strings.Builder
	for _, syllable := range pinyin.LazyConvert(chineseName, nil) {
		length := g.rng.Intn(len(syllable)) + 1
		local.WriteString(syllable[:length])
	}

	digitsLength := g.rng.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		local.WriteByte(digits[g.rng.Intn(len(digits))])
	}
	return local.String()
}

func (g *Generator) Phone() string {
	return fmt.Sprintf("+628%010d", g.rng.Int63n(10_000_000_000))
}

func (g *Generator) Employee() domain.CreateEmployeeRequest {
	name := g.ChineseName()
	return domain.CreateEmployeeRequest{
		Name:     name,
		Email:    g.LocalPart(name) + "@" + g.emailDomain,
		Phone:    g.Phone(),
		JobTitle: jobTitles[g.rng.Intn(len(jobTitles))],
	}
}
