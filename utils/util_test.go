package utils

import "testing"

func TestGetRunNameAndIDFromFormatString(t *testing.T) {
	type args struct {
		str string
	}
	tests := []struct {
		name    string
		args    args
		want    string
		want1   int
		wantErr bool
	}{
		{
			name: "test1",
			args: args{
				str: "test1(1)",
			},
			want:    "test1",
			want1:   1,
			wantErr: false,
		},
		{
			name: "no id",
			args: args{
				str: "test1",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, got1, err := GetRunNameAndIDFromFormatString(tt.args.str)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetRunNameAndIDFromFormatString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("GetRunNameAndIDFromFormatString() got = %v, want %v", got, tt.want)
			}
			if got1 != tt.want1 {
				t.Errorf("GetRunNameAndIDFromFormatString() got1 = %v, want %v", got1, tt.want1)
			}
		})
	}
}

func TestReplaceWithParam(t *testing.T) {
	params := map[string]string{
		"branch": "master",
	}
	got := ReplaceWithParam("git checkout ${{ param.branch }}", params)
	if got != "git checkout master" {
		t.Errorf("ReplaceWithParam() got = %v", got)
	}
	got = ReplaceWithParam("git checkout ${{param.branch}}", params)
	if got != "git checkout master" {
		t.Errorf("ReplaceWithParam() got = %v", got)
	}
}

func TestSlicePage(t *testing.T) {
	page, size, start, end := SlicePage(1, 10, 25)
	if page != 1 || size != 10 || start != 0 || end != 10 {
		t.Errorf("SlicePage() = %d %d %d %d", page, size, start, end)
	}
	_, _, start, end = SlicePage(3, 10, 25)
	if start != 20 || end != 25 {
		t.Errorf("SlicePage() start = %d, end = %d", start, end)
	}
	_, _, start, end = SlicePage(4, 10, 25)
	if start != 0 || end != 0 {
		t.Errorf("SlicePage() start = %d, end = %d", start, end)
	}
}
